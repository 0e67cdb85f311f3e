// Command surveyctl is the operator CLI: schema migrations, tenant bootstrap
// and refresh token maintenance.
package main

import (
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
