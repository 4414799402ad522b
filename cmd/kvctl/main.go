package main

import (
    "log"

    kvcli "github.com/amirimatin/go-kvrouter/pkg/cli"
)

func main() {
    if err := kvcli.NewRootCommand().Execute(); err != nil {
        log.Fatal(err)
    }
}
