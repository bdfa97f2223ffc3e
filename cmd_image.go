package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var flagOut string

var avatarCmd = &cobra.Command{
	Use:   "avatar <username>",
	Short: "Download a user's avatar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.restore(); err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		data, mediaType, err := env.session().Avatar(ctx, args[0])
		if err != nil {
			return err
		}
		out := flagOut
		if out == "" {
			out = args[0] + ".webp"
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("Saved %s (%s, %s)\n", out, mediaType, humanize.Bytes(uint64(len(data))))
		return nil
	},
}

var uploadImageCmd = &cobra.Command{
	Use:   "upload-image <file.webp>",
	Short: "Set your avatar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if err := env.restore(); err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		session := env.session()
		if err := session.UploadImage(ctx, data); err != nil {
			return err
		}
		fmt.Printf("Uploaded %s\n", humanize.Bytes(uint64(len(data))))
		return nil
	},
}

func init() {
	avatarCmd.Flags().StringVarP(&flagOut, "out", "o", "", "output file (default <username>.webp)")
	rootCmd.AddCommand(avatarCmd, uploadImageCmd)
}
