// classifier/tools/redis_setup/main.go

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/magiconair/properties"
	"github.com/redis/go-redis/v9"

	"rgehrsitz/classifier/pkg/compiler"
	"rgehrsitz/classifier/pkg/store"
	"rgehrsitz/classifier/pkg/validator"
)

type options struct {
	addr    string
	key     string
	channel string
	file    string
}

func parseFlags(args []string) options {
	var opts options
	fs := flag.NewFlagSet("redis_setup", flag.ExitOnError)
	fs.StringVar(&opts.addr, "redis", "localhost:6379", "Redis address")
	fs.StringVar(&opts.key, "key", store.DefaultRedisKey, "Key holding the categories")
	fs.StringVar(&opts.channel, "channel", store.DefaultRedisChannel, "Channel announcing changes")
	fs.StringVar(&opts.file, "file", "", "Categories file to seed Redis with")
	fs.Parse(args)
	return opts
}

func main() {
	ctx := context.Background()
	opts := parseFlags(os.Args[1:])

	src, err := store.NewRedisSource(ctx, opts.addr, "", 0, opts.key, opts.channel)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	if opts.file != "" {
		if err := seedFromFile(ctx, src, opts.file); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}
	startCLI(ctx, src, os.Stdin, os.Stdout)
}

func seedFromFile(ctx context.Context, src *store.RedisSource, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	if err := src.Publish(ctx, data); err != nil {
		return fmt.Errorf("error publishing %s: %w", path, err)
	}
	fmt.Printf("Seeded %s from %s\n", src.Name(), path)
	return nil
}

func startCLI(ctx context.Context, src *store.RedisSource, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Enter command (set <category> <query>, del <category>, show or exit): ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "exit" {
			return
		}
		if input == "" {
			continue
		}

		if err := processCommand(ctx, src, input, out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func processCommand(ctx context.Context, src *store.RedisSource, input string, out io.Writer) error {
	command, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch command {
	case "show":
		data, err := readCategories(ctx, src)
		if err != nil {
			return err
		}
		fmt.Fprint(out, string(data))
		return nil
	case "set":
		name, query, ok := strings.Cut(rest, " ")
		query = strings.TrimSpace(query)
		if !ok || name == "" || query == "" {
			return errors.New("invalid command. Use 'set <category> <query>'")
		}
		if err := validator.ValidateName(name); err != nil {
			return err
		}
		q, err := compiler.NewQueryParser(compiler.DefaultField, nil).Parse(query)
		if err != nil {
			return fmt.Errorf("query for %s does not parse: %w", name, err)
		}
		if err := validator.ValidateCategory(&compiler.Category{Name: name, Query: q, RawSource: query}); err != nil {
			fmt.Fprintf(out, "Warning: %v\n", err)
		}
		return updateCategories(ctx, src, func(p *properties.Properties) error {
			_, _, err := p.Set(name, query)
			return err
		}, out, fmt.Sprintf("Set %s to %s", name, query))
	case "del":
		if rest == "" {
			return errors.New("invalid command. Use 'del <category>'")
		}
		return updateCategories(ctx, src, func(p *properties.Properties) error {
			if _, ok := p.Get(rest); !ok {
				return fmt.Errorf("no category named %s", rest)
			}
			p.Delete(rest)
			return nil
		}, out, fmt.Sprintf("Deleted %s", rest))
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// readCategories returns the current source text, empty if the key is not
// set yet.
func readCategories(ctx context.Context, src *store.RedisSource) ([]byte, error) {
	data, err := src.Read(ctx)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func updateCategories(ctx context.Context, src *store.RedisSource, edit func(*properties.Properties) error, out io.Writer, done string) error {
	data, err := readCategories(ctx, src)
	if err != nil {
		return err
	}
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadBytes(data)
	if err != nil {
		return fmt.Errorf("stored categories are unreadable: %w", err)
	}
	p.DisableExpansion = true

	if err := edit(p); err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return err
	}
	if err := src.Publish(ctx, buf.Bytes()); err != nil {
		return err
	}
	fmt.Fprintln(out, done)
	return nil
}
