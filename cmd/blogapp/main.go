// Command blogapp はブログCMSのAPIサーバー、ワーカー、マイグレーションを起動する。
//
//	blogapp [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/blogapp/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "blogapp: %v\n", err)
		os.Exit(1)
	}
}
