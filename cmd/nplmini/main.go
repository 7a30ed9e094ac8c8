// Command nplmini inspects NPL addresses and channel tables and runs the
// NPL runtime as a standalone process.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
