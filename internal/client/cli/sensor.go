package cli

import (
	"context"
	"fmt"
)

func (a *App) listSensors(ctx context.Context) {
	sensors, err := a.api.ListSensors(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}
	if len(sensors) == 0 {
		fmt.Fprintln(a.out, "No sensors. Import a database first.")
		return
	}
	for _, s := range sensors {
		who := s.Issuer
		if s.Account != "" {
			if who != "" {
				who += " / "
			}
			who += s.Account
		}
		fmt.Fprintf(a.out, "%-20s %s  (%s, %ds left)\n", s.Key, s.Code, who, s.TimeRemaining)
	}
}

func (a *App) showToken(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "Usage: token <key>")
		return
	}
	code, err := a.api.SensorToken(ctx, args[0])
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(a.out, code)
}
