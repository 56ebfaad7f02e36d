package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Ignores every interrupt so only a kill stops it.
func main() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	fmt.Println("ready")

	go func() {
		for range sigs {
		}
	}()
	for {
		time.Sleep(time.Second)
	}
}
