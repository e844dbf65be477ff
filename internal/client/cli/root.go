package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

func (a *App) getStatus() string {
	if a.userName == "" {
		return ""
	}
	return fmt.Sprintf("(%s)", a.userName)
}

func (a *App) Root(ctx context.Context) {

	fmt.Fprintln(a.out, "Welcome to keepotp CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Fprintf(a.out, "keepotp %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(a.out, "Available commands: import, vaults, sensors, token <key>, snapshot <vault-id>, delete <vault-id>, exit")
			} else {
				fmt.Fprintln(a.out, "Available commands: register, login")
			}

		case "register":
			a.Register(ctx)
		case "login":
			a.Login(ctx)
		case "import":
			a.importVault(ctx)
		case "vaults":
			a.listVaults(ctx)
		case "sensors":
			a.listSensors(ctx)
		case "token":
			a.showToken(ctx, args)
		case "snapshot":
			a.snapshotURL(ctx, args)
		case "delete":
			a.deleteVault(ctx, args)
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return
		default:
			fmt.Fprintln(a.out, "Unknown command. Type 'help' for the list.")
		}
	}
}
