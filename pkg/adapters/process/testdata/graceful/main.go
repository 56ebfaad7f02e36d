package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Exits cleanly shortly after SIGTERM.
func main() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	fmt.Println("ready")

	select {
	case <-sigs:
		time.Sleep(100 * time.Millisecond)
		os.Exit(0)
	case <-time.After(30 * time.Second):
		os.Exit(4)
	}
}
