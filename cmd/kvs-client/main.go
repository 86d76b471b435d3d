// Command kvs-client sends a single Get, Set, or Remove request to a
// running kvs-server and prints the result.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wanjiru/kvs/internal/client"
	"github.com/wanjiru/kvs/internal/server"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 1
	}

	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet(sub, flag.ContinueOnError)
	addr := fs.String("addr", server.DefaultAddr, "server address (host:port)")

	switch sub {
	case "get":
		return runGet(fs, addr, rest)
	case "set":
		return runSet(fs, addr, rest)
	case "rm":
		return runRemove(fs, addr, rest)
	default:
		usage()
		return 1
	}
}

func runGet(fs *flag.FlagSet, addr *string, args []string) int {
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: kvs-client get [--addr host:port] <key>")
		return 1
	}

	c := client.New(*addr)
	value, ok, err := c.Get(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !ok {
		fmt.Println("Key not found")
		return 0
	}
	fmt.Println(value)
	return 0
}

func runSet(fs *flag.FlagSet, addr *string, args []string) int {
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: kvs-client set [--addr host:port] <key> <value>")
		return 1
	}

	c := client.New(*addr)
	if err := c.Set(fs.Arg(0), fs.Arg(1)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runRemove(fs *flag.FlagSet, addr *string, args []string) int {
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: kvs-client rm [--addr host:port] <key>")
		return 1
	}

	c := client.New(*addr)
	if err := c.Remove(fs.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kvs-client <get|set|rm> [--addr host:port] ...")
}
