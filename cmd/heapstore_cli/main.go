package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

const dialTimeout = 5 * time.Second

var helpText = strings.TrimSpace(`
Commands:
  CREATE <file> <record_size>        create a record file
  OPEN <file>                        open a record file
  CLOSE <file>                       flush and close a record file
  DROP <file>                        remove a record file (must be closed)
  INSERT <file> <payload>            insert a record, prints "page slot"
  GET <file> <page> <slot>           read a record
  UPDATE <file> <page> <slot> <payload>  overwrite a record in place
  DELETE <file> <page> <slot>        delete a record
  SCAN <file>                        list every record in rid order
  FLUSH <file>                       write header and dirty pages to disk
  BACKUP <file> <dst_path>           throttled copy of the file on the server
  QUIT                               close the connection and exit
`)

// readReply reads one reply; SCAN replies span extra lines announced in
// the first line's record count.
func readReply(reader *bufio.Reader) (string, error) {
	first, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	first = strings.TrimRight(first, "\n")
	lines := []string{first}
	var count int
	if _, err := fmt.Sscanf(first, "OK: %d records", &count); err == nil {
		for i := 0; i < count; i++ {
			line, err := reader.ReadString('\n')
			if err != nil {
				return "", err
			}
			lines = append(lines, strings.TrimRight(line, "\n"))
		}
	}
	return strings.Join(lines, "\n"), nil
}

func main() {
	addr := flag.String("addr", "localhost:9090", "heapstore server address")
	flag.Parse()

	conn, err := net.DialTimeout("tcp", *addr, dialTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("Connected to heapstore at %s. Type 'help' for commands.\n", *addr)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "heapstore> ",
		HistoryFile:     os.TempDir() + "/heapstore_cli_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	reader := bufio.NewReader(conn)
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			fmt.Fprintln(conn, "QUIT")
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "help") {
			fmt.Println(helpText)
			continue
		}
		if _, err := fmt.Fprintln(conn, line); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			return
		}
		reply, err := readReply(reader)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connection closed: %v\n", err)
			return
		}
		fmt.Println(reply)
		if strings.EqualFold(line, "quit") {
			return
		}
	}
}
