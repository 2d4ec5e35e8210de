package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sweeney/asterisk-popup/internal/ami"
)

type captureOptions struct {
	host   string
	port   int
	user   string
	secret string
	outDir string
}

func capture(ctx context.Context, out io.Writer, opts captureOptions) error {
	addr := net.JoinHostPort(opts.host, strconv.Itoa(opts.port))
	fmt.Fprintf(out, "connecting to %s...\n", addr)

	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	filename := filepath.Join(opts.outDir, time.Now().Format("20060102-150405")+".raw")
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()
	fmt.Fprintf(out, "writing to %s\n", filename)

	if err := record(ctx, out, conn, f, opts.user, opts.secret); err != nil {
		return err
	}
	return f.Sync()
}

// record performs the login on conn and copies everything the manager sends
// to w until ctx is done or the manager hangs up.
func record(ctx context.Context, out io.Writer, conn net.Conn, w io.Writer, user, secret string) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	banner, rest, err := ami.ReadLine(conn, nil)
	if err != nil {
		return fmt.Errorf("reading banner: %w", err)
	}
	if _, err := io.WriteString(w, banner+"\r\n"); err != nil {
		return err
	}
	fmt.Fprintf(out, "banner: %s\n", banner)

	if _, err := conn.Write(ami.Login(user, secret).Encode()); err != nil {
		return fmt.Errorf("sending login: %w", err)
	}
	resp, rest, err := ami.ReadResponse(conn, rest)
	if err != nil {
		return fmt.Errorf("reading login response: %w", err)
	}
	if !ami.IsSuccess(resp) {
		return fmt.Errorf("login rejected: %s", ami.ParseResponse(resp).Get("Message"))
	}
	if _, err := w.Write(resp); err != nil {
		return err
	}
	if _, err := w.Write(rest); err != nil {
		return err
	}

	fmt.Fprintln(out, "streaming events (ctrl+c to stop)...")
	_, err = io.Copy(w, conn)
	if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func listEvents(out io.Writer, r io.Reader) error {
	counts := make(map[string]int)
	var order []string

	p := ami.NewParser(r)
	for {
		evt, ok := p.Next()
		if !ok {
			break
		}
		kind := evt.Type()
		if counts[kind] == 0 {
			order = append(order, kind)
		}
		counts[kind]++
		fmt.Fprintf(out, "%-14s %s\n", kind, evt.Get("Channel"))
	}

	fmt.Fprintln(out)
	for _, kind := range order {
		fmt.Fprintf(out, "%6d %s\n", counts[kind], kind)
	}
	return nil
}
