package main

import (
	"fmt"
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "--help", "-h", "help":
		printHelp()
		return
	case "run":
		err = cmdRun(args)
	case "poll":
		err = cmdPoll(args)
	case "list":
		err = cmdList(args)
	case "vote":
		err = cmdVote(args)
	case "replicate":
		err = cmdReplicate(args)
	case "discover":
		err = cmdDiscover(args)
	default:
		fmt.Printf("unknown command: %s\n\n", cmd)
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Print(`Usage:
  newsfeed COMMAND [OPTIONS]

Commands:
   run         poll every configured source on its interval and refresh scores until interrupted
   poll        poll every configured source once and exit
   list        show stored items (-category, -since, -sort score|newest, -limit)
   vote        add a vote to an item (-id, -delta)
   replicate   copy all items from MongoDB into the configured store
   discover    list the feeds an HTML page advertises (-url)

Every command accepts -config PATH (default $NEWSFEED_CONFIG).
`)
}
