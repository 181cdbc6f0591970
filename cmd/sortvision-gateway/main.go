// @title SortVision Gateway API
// @version 1.0
// @description Capture upload, recognition results and operator feedback for the waste sorter
// @host localhost:8080
// @BasePath /api
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"sortvision-gateway/internal/bootstrap"
)

func main() {
	fmt.Printf("[%s] [INFO] [BOOT] starting sortvision-gateway...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "sortvision-gateway failed: %v\n", err)
		os.Exit(1)
	}
}
