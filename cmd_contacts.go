package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mchat/api"
	"mchat/models"
)

var flagSearch string

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List contacts with unread counts and the last message",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.restore(); err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		var previews []models.ChatPreview
		if flagSearch != "" {
			found, err := env.client.Contacts(ctx, flagSearch)
			if err != nil {
				return err
			}
			previews = found
		} else {
			session := env.session()
			if err := session.Sync(ctx); err != nil {
				return err
			}
			previews = session.Previews()
		}

		me, err := env.client.User(ctx)
		if err != nil {
			return err
		}
		printPreviews(previews, me)
		return nil
	},
}

func printPreviews(previews []models.ChatPreview, me string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tUNREAD\tLAST MESSAGE\tWHEN")
	for _, p := range previews {
		last, when := "-", "-"
		if p.LastMsg != nil {
			last = strings.Join(strings.Fields(p.LastMsg.Text), " ")
			if len([]rune(last)) > 40 {
				last = string([]rune(last)[:39]) + "…"
			}
			if p.LastMsg.Sender == me {
				last = "you: " + last
			}
			when = humanize.Time(p.LastMsg.Timestamp())
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", p.Name, p.Unread, last, when)
	}
	w.Flush()
}

var addContactCmd = &cobra.Command{
	Use:   "add-contact <username>",
	Short: "Add a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.restore(); err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		me, err := env.client.User(ctx)
		if err != nil {
			return err
		}
		name := strings.TrimSpace(args[0])
		if name == me {
			return api.ErrSelfContact
		}
		if err := env.client.AddContact(ctx, name); err != nil {
			return err
		}
		fmt.Printf("Added %s\n", name)
		return nil
	},
}

var deleteContactCmd = &cobra.Command{
	Use:   "delete-contact <username>",
	Short: "Remove a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.restore(); err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		if err := env.client.DeleteContact(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var contactCmd = &cobra.Command{
	Use:   "contact <username>",
	Short: "Show a contact's card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.restore(); err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		info, err := env.client.Contact(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(info.Name)
		if info.Online() {
			fmt.Println("online")
		} else {
			fmt.Printf("last seen %s\n", humanize.Time(time.UnixMilli(*info.LastTime)))
		}
		if info.Bio != "" {
			fmt.Printf("\n%s\n", info.Bio)
		}
		return nil
	},
}

var bioCmd = &cobra.Command{
	Use:   "bio <text>",
	Short: "Set your bio",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.restore(); err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		return env.client.UpdateBio(ctx, strings.Join(args, " "))
	},
}

var flagPeople []string

var createGroupCmd = &cobra.Command{
	Use:   "create-group <name>",
	Short: "Create a group with the given members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.restore(); err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()
		name := strings.TrimSpace(args[0])
		if name == "" {
			return api.ErrEmptyName
		}
		if err := env.client.CreateGroup(ctx, name, flagPeople); err != nil {
			return err
		}
		fmt.Printf("Created group %s\n", name)
		return nil
	},
}

func init() {
	contactsCmd.Flags().StringVar(&flagSearch, "search", "", "only contacts whose name contains this")
	createGroupCmd.Flags().StringSliceVar(&flagPeople, "people", nil, "members; repeat or comma-separated")
	rootCmd.AddCommand(contactsCmd, addContactCmd, deleteContactCmd, contactCmd, bioCmd, createGroupCmd)
}
