package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/tomaslejdung/coview/pkg/store"
)

func main() {
	var port int
	flag.IntVar(&port, "port", 8080, "Store server port")
	flag.IntVar(&port, "p", 8080, "Store server port (shorthand)")
	flag.Parse()

	server := store.NewServer(store.NewMemoryStore())

	addr := fmt.Sprintf(":%d", port)
	if err := server.StartServer(addr); err != nil {
		log.Fatalf("Store server failed: %v", err)
	}
}
