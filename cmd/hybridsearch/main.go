package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/cmd/hybridsearch/cmd"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(apperrors.ExitCode(err))
	}
}
