// Command crmsync receives Square booking webhooks and mirrors them into Zoho CRM.
package main

import (
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
