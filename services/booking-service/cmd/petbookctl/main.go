package main

import (
	"fmt"
	"os"

	"github.com/md-rashed-zaman/petbook/libs/runtime"
)

func main() {
	ctx, stop := runtime.SignalContext()
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
