package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/client"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/guard"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/session"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/pkg/utilities"
)

type globalOptions struct {
	server      string
	sessionFile string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "ewaste",
		Short:         "Command line client for the e-waste credential service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	server := os.Getenv("EWASTE_SERVER")
	if server == "" {
		server = client.DefaultBaseURL
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "credential service base URL (env EWASTE_SERVER)")
	cmd.PersistentFlags().StringVar(&opts.sessionFile, "session-file", "", "session file (default $XDG_CONFIG_HOME/ewaste/session.json)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log HTTP calls to stderr")

	cmd.AddCommand(
		newRegisterCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newOpenCmd(opts),
	)
	return cmd
}

func (o *globalOptions) session() (*session.Context, error) {
	path := o.sessionFile
	if path == "" {
		p, err := session.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	fb, err := session.NewFileBackend(path)
	if err != nil {
		return nil, err
	}
	return session.New(fb)
}

func (o *globalOptions) client() (*client.Client, error) {
	sess, err := o.session()
	if err != nil {
		return nil, err
	}
	logger := zap.NewNop().Sugar()
	if o.verbose {
		lg, err := utilities.Init(utilities.Config{Level: "debug", Dev: true})
		if err != nil {
			return nil, err
		}
		logger = lg.Sugar()
	}
	return client.New(o.server, sess, nil, logger), nil
}

// readPassword takes the flag, then EWASTE_PASSWORD, then one line of stdin.
func readPassword(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv("EWASTE_PASSWORD"); v != "" {
		return v, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("password is required")
	}
	return pw, nil
}

func newRegisterCmd(opts *globalOptions) *cobra.Command {
	var req client.RegisterRequest
	var password string
	var rider bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if req.Password, err = readPassword(cmd, password); err != nil {
				return err
			}
			var res *client.AuthResponse
			if rider {
				res, err = c.RegisterRider(cmd.Context(), req)
			} else {
				res, err = c.Register(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s as %s\n", res.User.Email, res.User.Role)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Email, "email", "", "account email")
	f.StringVar(&password, "password", "", "account password (env EWASTE_PASSWORD, or prompt)")
	f.StringVar(&req.Name, "name", "", "display name")
	f.StringVar(&req.Address, "address", "", "pickup address")
	f.StringVar(&req.Phone, "phone", "", "phone number")
	f.BoolVar(&rider, "rider", false, "sign up through the rider portal")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var email, password string
	var rider bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			var res *client.AuthResponse
			if rider {
				res, err = c.RiderLogin(cmd.Context(), email, pw)
			} else {
				res, err = c.Login(cmd.Context(), email, pw)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", res.User.Email, res.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (env EWASTE_PASSWORD, or prompt)")
	cmd.Flags().BoolVar(&rider, "rider", false, "use the rider login")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the current token and forget the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newWhoamiCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if _, err := c.Protected(cmd.Context()); err != nil {
				if errors.Is(err, client.ErrReauthRequired) {
					return errors.New("not signed in; run `ewaste login`")
				}
				return err
			}
			u, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> role=%s id=%s\n", u.Name, u.Email, u.Role, u.ID)
			return nil
		},
	}
}

func newOpenCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open <view>",
		Short: "Check whether the stored session may open a view",
		Long:  "Runs the access guard over the stored session. Exits non-zero unless the view would render.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.session()
			if err != nil {
				return err
			}
			target := args[0]
			if !strings.HasPrefix(target, "/") {
				target = "/" + target
			}
			d := guard.Check(guard.Routes, sess.Snapshot(), target)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", d.Outcome, d.Location)
			if d.Outcome != guard.Render {
				cmd.SilenceErrors = true
				return errBlocked
			}
			return nil
		},
	}
}

var errBlocked = errors.New("navigation blocked")
