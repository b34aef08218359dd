package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

// runLogin signs in with email and password and stores the credential.
func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("--email is required")
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	ctx := context.Background()
	d, cleanup, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	u, err := d.client.Login(ctx, *email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Signed in as %s\n", u.Email)
	return nil
}

// runRegister creates an account and signs in.
func runRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	email := fs.String("email", "", "account email (required)")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("--email is required")
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	ctx := context.Background()
	d, cleanup, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	u, err := d.client.Register(ctx, *email, password, *name)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Account created: %s\n", u.Email)
	return nil
}

// runLogout invalidates the server session and clears local credentials.
func runLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	d, cleanup, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := d.client.Logout(ctx); err != nil {
		// Local credentials are gone either way; the server call is best
		// effort.
		fmt.Fprintf(os.Stderr, "Signed out locally (server: %v)\n", err)
		return nil
	}
	fmt.Fprintln(os.Stderr, "Signed out.")
	return nil
}

// runAPIKey stores or clears the static API key.
func runAPIKey(args []string) error {
	fs := flag.NewFlagSet("apikey", flag.ContinueOnError)
	remove := fs.Bool("clear", false, "remove the stored key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	d, cleanup, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if *remove {
		if err := d.creds.SetAPIKey(""); err != nil {
			return fmt.Errorf("clear api key: %w", err)
		}
		fmt.Fprintln(os.Stderr, "API key cleared.")
		return nil
	}

	key := fs.Arg(0)
	if key == "" {
		key, err = promptPassword("API key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
	}
	if key == "" {
		return errors.New("an API key is required (or pass --clear)")
	}

	if err := d.creds.SetAPIKey(key); err != nil {
		return fmt.Errorf("store api key: %w", err)
	}
	fmt.Fprintln(os.Stderr, "API key stored.")
	return nil
}

// runWhoami shows the signed-in account, preferring the server's view.
func runWhoami(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	d, cleanup, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	u, err := d.client.Me(ctx)
	if err == nil && (u.ID != "" || u.Email != "") {
		fmt.Printf("%s (%s)\n", u.Email, u.ID)
		return nil
	}

	if local := d.creds.User(); local != nil {
		fmt.Printf("%s (%s, cached)\n", local.Email, local.ID)
		return nil
	}
	if d.creds.Get().HasAPIKey() {
		fmt.Println("authenticated via API key")
		return nil
	}
	return errors.New("not signed in")
}

// promptPassword reads a secret from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
