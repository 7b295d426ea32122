package main

import (
	"context"
	"fmt"
	"os"

	"vitarp-go/internal/bootstrap"
)

func main() {
	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "vitarp-core failed: %v\n", err)
		os.Exit(1)
	}
}
