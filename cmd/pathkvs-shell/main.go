// Command pathkvs-shell is an interactive client for pathkvsd's wire
// protocol: one TCP connection, one live transaction, readline-style
// editing and history via liner.
//
// Commands:
//
//	get <key>                 read a key
//	put <key> <value>         stage a write
//	del <key>                 stage a delete
//	scan <begin> <end>        list matching keys
//	scanv <begin> <end>       list matching keys and values
//	commit                    attempt to commit the pending transaction
//	rollback                  discard pending writes and start over
//	stats                     show database diagnostics
//	help                      show this help
//	exit / quit               disconnect
package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: pathkvs-shell <addr>")
	}
	addr := os.Args[1]

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	repl := &repl{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
	return repl.run()
}

type repl struct {
	conn   net.Conn
	reader *bufio.Reader
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pathkvs_shell_history")
}

func (r *repl) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("pathkvs-shell connected to %s\n", r.conn.RemoteAddr())
	fmt.Println("Type 'help' for available commands.")

	for {
		line, err := r.liner.Prompt("pathkvs> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		if done := r.dispatch(line); done {
			break
		}
	}

	r.saveHistory()
	return nil
}

func (r *repl) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		r.liner.WriteHistory(f)
		f.Close()
	}
}

func completer(line string) []string {
	commands := []string{"get", "put", "del", "scan", "scanv", "commit", "rollback", "stats", "help", "exit", "quit"}
	var out []string
	for _, c := range commands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c)
		}
	}
	return out
}

// dispatch translates one REPL command into a wire-protocol line,
// sends it, and prints the response. It returns true when the shell
// should exit.
func (r *repl) dispatch(line string) bool {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "exit", "quit":
		return true

	case "help":
		printHelp()
		return false

	case "get":
		if len(fields) != 2 {
			fmt.Println("usage: get <key>")
			return false
		}
		r.sendAndPrint(fields[1])

	case "put":
		if len(fields) < 3 {
			fmt.Println("usage: put <key> <value>")
			return false
		}
		key := fields[1]
		val := strings.Join(fields[2:], " ")
		r.sendAndPrint(key + "=" + val)

	case "del":
		if len(fields) != 2 {
			fmt.Println("usage: del <key>")
			return false
		}
		r.sendAndPrint(fields[1] + "!")

	case "scan":
		if len(fields) != 3 {
			fmt.Println("usage: scan <begin> <end>")
			return false
		}
		r.sendAndPrintScan(fields[1] + "*" + fields[2])

	case "scanv":
		if len(fields) != 3 {
			fmt.Println("usage: scanv <begin> <end>")
			return false
		}
		r.sendAndPrintScan(fields[1] + "*" + fields[2] + "=")

	case "commit":
		r.sendAndPrint("commit")

	case "rollback":
		r.sendAndPrint("rollback")

	case "stats":
		r.sendAndPrint("stats")

	default:
		fmt.Printf("unknown command: %s (type 'help' for commands)\n", fields[0])
	}
	return false
}

func (r *repl) sendAndPrint(wireLine string) {
	resp, err := r.roundTrip(wireLine)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(resp)
}

func (r *repl) sendAndPrintScan(wireLine string) {
	if _, err := fmt.Fprintln(r.conn, wireLine); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for {
		row, err := r.reader.ReadString('\n')
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		row = strings.TrimRight(row, "\n")
		if row == "." {
			return
		}
		fmt.Println(row)
	}
}

func (r *repl) roundTrip(wireLine string) (string, error) {
	if _, err := fmt.Fprintln(r.conn, wireLine); err != nil {
		return "", err
	}
	resp, err := r.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(resp, "\n"), nil
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  get <key>                 read a key")
	fmt.Println("  put <key> <value>         stage a write")
	fmt.Println("  del <key>                 stage a delete")
	fmt.Println("  scan <begin> <end>        list matching keys")
	fmt.Println("  scanv <begin> <end>       list matching keys and values")
	fmt.Println("  commit                    attempt to commit the pending transaction")
	fmt.Println("  rollback                  discard pending writes and start over")
	fmt.Println("  stats                     show database diagnostics")
	fmt.Println("  help                      show this help")
	fmt.Println("  exit / quit               disconnect")
}
