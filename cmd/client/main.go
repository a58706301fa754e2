package main

import (
	"context"
	"devctl/internal/infrastructure/network"
	"devctl/internal/protocol"
	"devctl/pkg/config"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/peterh/liner"
	"golang.org/x/term"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	addr      = kingpin.Flag("addr", "Device address (host:port).").Short('a').Default("127.0.0.1:" + config.DefaultPort).String()
	timeout   = kingpin.Flag("timeout", "Connect and per-read timeout.").Short('t').Default("30s").Duration()
	user      = kingpin.Flag("user", "User name to check against the device.").Short('u').Default("root").String()
	password  = kingpin.Flag("password", "Password to check against the device. Prompted for when empty.").Short('p').String()
	chunkSize = kingpin.Flag("chunk-size", "Chunk size for uploads.").Default("1024").Int()
	verbose   = kingpin.Flag("verbose", "Log protocol details.").Short('v').Bool()
)

func main() {
	kingpin.Parse()

	lvl := log.LvlWarn
	if *verbose {
		lvl = log.LvlDebug
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat(term.IsTerminal(int(os.Stderr.Fd()))))))

	cfg := config.NewConfig().Client
	cfg.Timeout = *timeout
	cfg.ChunkSize = *chunkSize

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := network.NewTCPClient(&cfg)
	if err := client.Connect(ctx, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to connect to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer client.Disconnect()

	if err := login(client); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("connected to %s, type help for commands\n", *addr)

	go func() {
		<-ctx.Done()
		client.Disconnect()
	}()
	shell(client)
}

// login compares the given credentials with the ones the device reports.
func login(client *network.TCPClient) error {
	pass := *password
	if pass == "" {
		fmt.Print("password: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		pass = string(b)
	}

	name, err := client.SendCommand("user1024")
	if err != nil {
		return err
	}
	stored, err := client.SendCommand("passwd1024")
	if err != nil {
		return err
	}
	if name != *user || stored != pass {
		return errors.New("invalid user name or password")
	}
	return nil
}

func shell(client *network.TCPClient) {
	console := liner.NewLiner()
	defer console.Close()
	console.SetCtrlCAborts(true)

	for {
		input, err := console.Prompt("devctl> ")
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, liner.ErrPromptAborted) {
				fmt.Printf("error: %v\n", err)
			}
			return
		}
		line := strings.TrimSpace(input)
		if line == "" {
			continue
		}
		console.AppendHistory(line)

		fields := strings.Fields(line)
		switch {
		case fields[0] == "upload":
			err = upload(client, fields[1:])
		case fields[0] == "get":
			err = download(client, fields[1:])
		case fields[0] == "cat" && len(fields) > 1:
			var data []byte
			if data, err = client.Cat(strings.TrimSpace(strings.TrimPrefix(line, "cat"))); err == nil {
				fmt.Println(string(data))
			}
		case line == "debug log":
			var data []byte
			if data, err = client.DebugLog(); err == nil {
				fmt.Print(string(data))
			}
		case fields[0] == "resume" && len(fields) == 2:
			err = resume(client, fields[1])
		default:
			var reply string
			if reply, err = client.SendCommand(line); err == nil {
				fmt.Println(reply)
			}
			if line == "exit" || line == "Exit" {
				return
			}
		}

		var re *network.ReplyError
		switch {
		case errors.As(err, &re):
			fmt.Println(re.Reply)
		case protocol.IsProtocolError(err):
			fmt.Printf("transfer aborted: %v\n", err)
		case err != nil:
			fmt.Printf("error: %v\n", err)
			return
		}
	}
}

func upload(client *network.TCPClient, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		fmt.Println("usage: upload <local> [remote]")
		return nil
	}
	remote := filepath.Base(args[0])
	if len(args) == 2 {
		remote = args[1]
	}
	reply, err := client.UploadFile(args[0], remote)
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

func download(client *network.TCPClient, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		fmt.Println("usage: get <remote> [local]")
		return nil
	}
	local := filepath.Base(args[0])
	if len(args) == 2 {
		local = args[1]
	}
	n, err := client.DownloadFile(args[0], local)
	if err != nil {
		os.Remove(local)
		return err
	}
	fmt.Printf("downloaded %s to %s, %d bytes\n", args[0], local, n)
	return nil
}

func resume(client *network.TCPClient, name string) error {
	state, err := client.Resume(name)
	if err != nil {
		return err
	}
	if state == nil {
		fmt.Println("no partial upload of", name)
		return nil
	}
	fmt.Printf("%s: %d of %d bytes on device\n", name, state.Position, state.TotalSize)
	return nil
}
