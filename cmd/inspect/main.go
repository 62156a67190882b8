// Command inspect dumps the documents of a chat-sync store as a table.
// The store is opened read-only, so it can run next to a live client.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH"`
	MaxWidth       int    `envconfig:"INSPECT_MAX_WIDTH" default:"80"`
}

func main() {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if config.BadgerFilepath == "" {
		config.BadgerFilepath = database.DefaultPath
	}
	dbPath := flag.String("db", config.BadgerFilepath, "Path to badger DB")
	prefix := flag.String("prefix", "doc:", "Key prefix to scan, e.g. doc:conversations: or uniq:")
	flag.Parse()

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Fields", "Content"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			table.Append(row(key, value, config.MaxWidth))
			count++
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
	fmt.Printf("%d key(s) under %q\n", count, *prefix)
}

// row renders a document as its sorted field names and JSON content.
// Unique guards hold the plain ID of the document owning the key.
func row(key string, value []byte, maxWidth int) []string {
	if strings.HasPrefix(key, "uniq:") {
		return []string{key, "-", string(value)}
	}
	var data structpb.Struct
	if err := proto.Unmarshal(value, &data); err != nil {
		return []string{key, "?", fmt.Sprintf("unreadable: %v", err)}
	}
	fields := make([]string, 0, len(data.GetFields()))
	for name := range data.GetFields() {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	content := protojson.Format(&data)
	content = strings.Join(strings.Fields(content), " ")
	if maxWidth > 3 && len(content) > maxWidth {
		content = content[:maxWidth-3] + "..."
	}
	return []string{key, strings.Join(fields, ","), content}
}
