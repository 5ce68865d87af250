package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/darasa/core/user"
)

var readPasswordFunc = term.ReadPassword // mockable

// commandLine drives the client from a terminal: navigate, sign in and
// out, and dump the rendered page.
type commandLine struct {
	app *app
	in  io.Reader
	out io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Commands:")
	fmt.Fprintln(cli.out, "  open PATH    - navigate to a page (e.g. open /courses)")
	fmt.Fprintln(cli.out, "  back         - go to the previous page")
	fmt.Fprintln(cli.out, "  show         - print the current page")
	fmt.Fprintln(cli.out, "  login EMAIL  - sign in; the password is prompted next")
	fmt.Fprintln(cli.out, "  logout       - sign out")
	fmt.Fprintln(cli.out, "  whoami       - print the signed-in user")
	fmt.Fprintln(cli.out, "  quit         - exit")
}

func (cli *commandLine) run(ctx context.Context) {
	scanner := bufio.NewScanner(cli.in)
	cli.show()
	for {
		fmt.Fprint(cli.out, "> ")
		if !scanner.Scan() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "open":
			if len(args) != 1 {
				cli.printUsage()
				continue
			}
			if err := cli.app.router.Navigate(ctx, args[0], false); err != nil {
				fmt.Fprintln(cli.out, "error:", err)
				continue
			}
			cli.show()
		case "back":
			if err := cli.app.router.Back(ctx); err != nil {
				fmt.Fprintln(cli.out, "error:", err)
				continue
			}
			cli.show()
		case "show":
			cli.show()
		case "login":
			if len(args) != 1 {
				cli.printUsage()
				continue
			}
			cli.login(ctx, args[0])
		case "logout":
			cli.app.sessions.Logout(ctx)
			fmt.Fprintln(cli.out, "signed out")
		case "whoami":
			if usr, ok := cli.app.sessions.CurrentUser(); ok {
				fmt.Fprintf(cli.out, "%s <%s> (%s)\n", usr.Name, usr.Email, usr.Role)
				if claims, err := cli.app.sessions.TokenClaims(); err == nil {
					fmt.Fprintf(cli.out, "token: sub=%v exp=%v\n", claims["sub"], claims["exp"])
				}
			} else {
				fmt.Fprintln(cli.out, "not signed in")
			}
		case "quit", "exit":
			return
		default:
			cli.printUsage()
		}
	}
}

func (cli *commandLine) login(ctx context.Context, email string) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Fprintln(cli.out)
	if err != nil {
		fmt.Fprintln(cli.out, "error:", err)
		return
	}

	usr, err := cli.app.sessions.Login(ctx, user.LoginForm{Email: email, Password: string(pwd)})
	if err != nil {
		fmt.Fprintln(cli.out, "login failed:", err)
		return
	}
	fmt.Fprintf(cli.out, "welcome, %s\n", usr.Name)

	// honor a pending ?redirect= from the login page
	target := "/dashboard"
	if cur, ok := cli.app.router.CurrentRoute(); ok {
		if redirect := cur.Query["redirect"]; redirect != "" {
			target = redirect
		}
	}
	if err := cli.app.router.Navigate(ctx, target, true); err != nil {
		fmt.Fprintln(cli.out, "error:", err)
		return
	}
	cli.show()
}

func (cli *commandLine) show() {
	cur, ok := cli.app.router.CurrentRoute()
	if !ok {
		fmt.Fprintln(cli.out, "(nothing rendered yet)")
		return
	}
	fmt.Fprintf(cli.out, "== %s (%s)\n", cur.Title, cur.Path)
	fmt.Fprintln(cli.out, cur.Node.HTML())
}
