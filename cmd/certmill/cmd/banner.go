package cmd

import (
	"fmt"
)

const banner = `
  _____              _    __  __  _  _  _
 / ____|            | |  |  \/  |(_)| || |
| |       ___  _ __ | |_ | \  / | _ | || |
| |      / _ \| '__|| __|| |\/| || || || |
| |____ |  __/| |   | |_ | |  | || || || |
 \_____| \___||_|    \__||_|  |_||_||_||_|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Local CA & Mutual TLS Generator - Version %s\x1b[0m\n\n", Version)
}
