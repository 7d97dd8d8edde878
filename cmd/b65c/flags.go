package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// GetFlag gets an expected bool flag, or exits if the flag was never
// registered (a programmer error, not a user-facing one).
func GetFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	return v
}

// GetUint gets an expected uint flag.
func GetUint(cmd *cobra.Command, name string) uint {
	v, err := cmd.Flags().GetUint(name)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	return v
}

// GetString gets an expected string flag.
func GetString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	return v
}
