package admintools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"git.handmade.network/hmn/boardmod/src/auditlog"
	"git.handmade.network/hmn/boardmod/src/auth"
	"git.handmade.network/hmn/boardmod/src/bans"
	"git.handmade.network/hmn/boardmod/src/config"
	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/enforcement"
	"git.handmade.network/hmn/boardmod/src/geo"
	"git.handmade.network/hmn/boardmod/src/models"
	"git.handmade.network/hmn/boardmod/src/notify"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/rangebans"
	"git.handmade.network/hmn/boardmod/src/utils"
	"git.handmade.network/hmn/boardmod/src/website"
	"github.com/spf13/cobra"
)

func init() {
	adminCommand := &cobra.Command{
		Use:   "admin",
		Short: "Miscellaneous admin commands",
	}
	website.WebsiteCommand.AddCommand(adminCommand)

	createUserCommand := &cobra.Command{
		Use:   "createuser [username] [admin|moderator|janitor] [boards...]",
		Short: "Creates a moderation account",
		Long:  "Creates a moderation account. Moderators and janitors given no boards can act on every board.",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 2 {
				fmt.Printf("You must provide a username and a role.\n\n")
				cmd.Usage()
				os.Exit(1)
			}

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			user, err := auth.CreateUser(ctx, conn, args[0], models.Role(args[1]), args[2:])
			if err != nil {
				exitWithError(err)
			}

			boards := "all boards"
			if len(user.Boards) > 0 {
				boards = fmt.Sprintf("%v", user.Boards)
			}
			fmt.Printf("Created %s '%s' (id %d) for %s.\n", user.Role, user.Username, user.ID, boards)
		},
	}
	adminCommand.AddCommand(createUserCommand)

	tokenCommand := &cobra.Command{
		Use:   "token [username]",
		Short: "Issues a session for a user",
		Long:  "Issues a session for a user. Send it as a bearer token or as the session cookie.",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 1 {
				fmt.Printf("You must provide a username.\n\n")
				cmd.Usage()
				os.Exit(1)
			}
			duration, _ := cmd.Flags().GetDuration("duration")
			if duration <= 0 {
				duration = config.Config.Auth.SessionDuration
			}

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			user, err := auth.FetchUserByUsername(ctx, conn, args[0])
			if errors.Is(err, auth.ErrUserNotFound) {
				fmt.Printf("User '%s' not found\n", args[0])
				os.Exit(1)
			} else if err != nil {
				panic(err)
			}

			session := utils.Must1(auth.CreateSession(ctx, conn, user.ID, duration))

			fmt.Printf("Session for '%s' (expires %s):\n\n", user.Username, session.ExpiresAt.Format(time.RFC3339))
			fmt.Printf("    Authorization: Bearer %s\n", session.ID)
			fmt.Printf("    Cookie: %s=%s\n", config.Config.Auth.CookieName, session.ID)
		},
	}
	tokenCommand.Flags().Duration("duration", 0, "How long the session lasts (defaults to the configured session duration)")
	adminCommand.AddCommand(tokenCommand)

	pruneHistoryCommand := &cobra.Command{
		Use:   "prunehistory [days to keep]",
		Short: "Deletes IP history older than the given number of days",
		Run: func(cmd *cobra.Command, args []string) {
			days := config.Config.Audit.RetentionDays
			if len(args) > 0 {
				var err error
				days, err = strconv.Atoi(args[0])
				if err != nil {
					fmt.Printf("'%s' is not a number of days.\n\n", args[0])
					cmd.Usage()
					os.Exit(1)
				}
			}
			if days < 1 {
				fmt.Printf("You must keep at least one day of history.\n")
				os.Exit(1)
			}

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			deleted, err := auditlog.New(conn).CleanupOldActions(ctx, days)
			if err != nil {
				panic(err)
			}
			fmt.Printf("Deleted %d actions older than %d days.\n", deleted, days)
		},
	}
	adminCommand.AddCommand(pruneHistoryCommand)

	ipSummaryCommand := &cobra.Command{
		Use:   "ipsummary [ip]",
		Short: "Shows the moderation history of an IP",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 1 {
				fmt.Printf("You must provide an IP address.\n\n")
				cmd.Usage()
				os.Exit(1)
			}
			ip := args[0]
			limit, _ := cmd.Flags().GetInt("limit")

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			auditLog := auditlog.New(conn)
			printJSON(map[string]any{
				"summary": utils.Must1(auditLog.GetIPSummary(ctx, ip)),
				"actions": utils.Must1(auditLog.GetActionsByIP(ctx, ip, auditlog.ActionsQuery{Limit: limit})),
			})
		},
	}
	ipSummaryCommand.Flags().Int("limit", 20, "How many recent actions to show")
	adminCommand.AddCommand(ipSummaryCommand)

	checkIPCommand := &cobra.Command{
		Use:   "checkip [ip] [board]",
		Short: "Shows whether an IP may post on a board",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 2 {
				fmt.Printf("You must provide an IP address and a board.\n\n")
				cmd.Usage()
				os.Exit(1)
			}
			ip, board := args[0], args[1]

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			resolver, err := geo.Open(config.Config.GeoIP.CountryDBPath, config.Config.GeoIP.ASNDBPath)
			if err != nil {
				fmt.Printf("GeoIP unavailable, only checking IP bans and IP ranges: %v\n", err)
				resolver, _ = geo.Open("", "")
			}
			defer resolver.Close()

			if country, _ := resolver.CountryCode(ctx, ip); country != "" {
				fmt.Printf("Country: %s (%s)\n", geo.CountryName(country), country)
			}

			banStore := bans.NewStore(conn, auditlog.New(conn), notify.Nop{})
			rangebanStore := rangebans.NewStore(conn, notify.Nop{})
			decision := enforcement.New(banStore, rangebanStore, resolver).Evaluate(ctx, ip, board)
			if !decision.Blocked() {
				fmt.Printf("%s may post on /%s/.\n", ip, board)
				return
			}
			fmt.Printf("%s is blocked on /%s/ (%s): %s\n", ip, board, decision.Kind, decision.Message())
		},
	}
	adminCommand.AddCommand(checkIPCommand)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	utils.Must(enc.Encode(v))
}

// Problems with the arguments are printed; anything else is a bug.
func exitWithError(err error) {
	var validation *oops.ValidationError
	if errors.As(err, &validation) {
		fmt.Print(validation.Message)
		if len(validation.Required) > 0 {
			fmt.Printf(" (required: %v)", validation.Required)
		}
		if len(validation.Allowed) > 0 {
			fmt.Printf(" (allowed: %v)", validation.Allowed)
		}
		fmt.Println()
		os.Exit(1)
	}
	if errors.Is(err, auth.ErrUsernameTaken) {
		fmt.Println("That username is already taken.")
		os.Exit(1)
	}
	panic(err)
}
