// Command aadtoken validates and inspects Azure AD tokens.
package main

import (
	"context"
	"os"

	"github.com/entratools/aad-token-validator/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
