// drinksync links a phone-side host with a smart water bottle or scale.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"drinksync/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "drinksync: %v\n", err)
		os.Exit(1)
	}
}
