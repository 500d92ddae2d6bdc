package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	// ---- register ----
	regCmd := flag.NewFlagSet("register", flag.ExitOnError)
	regAddr := regCmd.String("addr", defaultAddr(), "daemon address")
	regUser := regCmd.String("user", "", "username")

	// ---- login ----
	loginCmd := flag.NewFlagSet("login", flag.ExitOnError)
	loginAddr := loginCmd.String("addr", defaultAddr(), "daemon address")
	loginUser := loginCmd.String("user", "", "username")

	// ---- status ----
	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)
	statusAddr := statusCmd.String("addr", defaultAddr(), "daemon address")

	// ---- generate ----
	genCmd := flag.NewFlagSet("generate", flag.ExitOnError)
	genAddr := genCmd.String("addr", defaultAddr(), "daemon address")
	genDevice := genCmd.Bool("device", false, "bind the key to this device instead of a passphrase")

	// ---- unlock ----
	unlockCmd := flag.NewFlagSet("unlock", flag.ExitOnError)
	unlockAddr := unlockCmd.String("addr", defaultAddr(), "daemon address")
	unlockDevice := unlockCmd.Bool("device", false, "unlock with the device key")

	// ---- lock ----
	lockCmd := flag.NewFlagSet("lock", flag.ExitOnError)
	lockAddr := lockCmd.String("addr", defaultAddr(), "daemon address")

	// ---- recover ----
	recoverCmd := flag.NewFlagSet("recover", flag.ExitOnError)
	recoverAddr := recoverCmd.String("addr", defaultAddr(), "daemon address")
	recoverRewrap := recoverCmd.Bool("set-passphrase", false, "set a new passphrase after recovery")

	// ---- rotate ----
	rotateCmd := flag.NewFlagSet("rotate", flag.ExitOnError)
	rotateAddr := rotateCmd.String("addr", defaultAddr(), "daemon address")

	// ---- put / get / delete ----
	putCmd := flag.NewFlagSet("put", flag.ExitOnError)
	putAddr := putCmd.String("addr", defaultAddr(), "daemon address")
	putColl := putCmd.String("coll", "journal", "collection name")
	putID := putCmd.String("id", "", "document id (omit to create with a fresh id)")
	putJSON := putCmd.String("json", "", "document as JSON (default: read from stdin)")

	getCmd := flag.NewFlagSet("get", flag.ExitOnError)
	getAddr := getCmd.String("addr", defaultAddr(), "daemon address")
	getColl := getCmd.String("coll", "journal", "collection name")
	getID := getCmd.String("id", "", "document id")

	delCmd := flag.NewFlagSet("delete", flag.ExitOnError)
	delAddr := delCmd.String("addr", defaultAddr(), "daemon address")
	delColl := delCmd.String("coll", "journal", "collection name")
	delID := delCmd.String("id", "", "document id")

	// ---- migrate ----
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	migrateAddr := migrateCmd.String("addr", defaultAddr(), "daemon address")
	migrateFile := migrateCmd.String("file", "", "JSON file with guest snapshot entries")

	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "register":
		_ = regCmd.Parse(os.Args[2:])
		dieIf(cmdRegister(*regAddr, *regUser))
	case "login":
		_ = loginCmd.Parse(os.Args[2:])
		dieIf(cmdLogin(*loginAddr, *loginUser))
	case "status":
		_ = statusCmd.Parse(os.Args[2:])
		dieIf(cmdStatus(*statusAddr))
	case "generate":
		_ = genCmd.Parse(os.Args[2:])
		dieIf(cmdGenerate(*genAddr, *genDevice))
	case "unlock":
		_ = unlockCmd.Parse(os.Args[2:])
		dieIf(cmdUnlock(*unlockAddr, *unlockDevice))
	case "lock":
		_ = lockCmd.Parse(os.Args[2:])
		dieIf(cmdLock(*lockAddr))
	case "recover":
		_ = recoverCmd.Parse(os.Args[2:])
		dieIf(cmdRecover(*recoverAddr, *recoverRewrap))
	case "rotate":
		_ = rotateCmd.Parse(os.Args[2:])
		dieIf(cmdRotate(*rotateAddr))
	case "put":
		_ = putCmd.Parse(os.Args[2:])
		dieIf(cmdPut(*putAddr, *putColl, *putID, *putJSON))
	case "get":
		_ = getCmd.Parse(os.Args[2:])
		dieIf(cmdGetDoc(*getAddr, *getColl, *getID))
	case "delete":
		_ = delCmd.Parse(os.Args[2:])
		dieIf(cmdDelete(*delAddr, *delColl, *delID))
	case "migrate":
		_ = migrateCmd.Parse(os.Args[2:])
		dieIf(cmdMigrate(*migrateAddr, *migrateFile))
	default:
		usage()
	}
}

func usage() {
	fmt.Print(`daybookctl commands:

  register --user alice                      create an account (prompts for password)
  login    --user alice                      print a session token (export DAYBOOK_TOKEN)
  status                                     show the key state (missing/locked/ready)
  generate [--device]                        create the account key, prints the recovery phrase once
  unlock   [--device]                        unlock the key (prompts for passphrase unless --device)
  lock                                       drop the unlocked key
  recover  [--set-passphrase]                unlock with the 24-word recovery phrase
  rotate                                     change the passphrase (prompts for old and new)
  put      --coll journal [--id day-1]       store a document (JSON via --json or stdin)
  get      --coll journal --id day-1         fetch and decrypt a document
  delete   --coll journal --id day-1         delete a document
  migrate  --file guest.json                 upload a guest snapshot under the account key

The daemon address defaults to http://localhost:8787 (DAYBOOK_ADDR).
Authenticated commands read the token from DAYBOOK_TOKEN.
`)
}

func defaultAddr() string {
	if v := os.Getenv("DAYBOOK_ADDR"); v != "" {
		return v
	}
	return "http://localhost:8787"
}

func token() (string, error) {
	t := os.Getenv("DAYBOOK_TOKEN")
	if t == "" {
		return "", errors.New("DAYBOOK_TOKEN not set, run `daybookctl login` first")
	}
	return t, nil
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// call sends a JSON request and decodes the JSON answer. A non-2xx
// status is returned as an error carrying the server's message.
func call(addr, method, path, tok string, body any) (map[string]any, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(method, addr+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if msg, ok := out["error"].(string); ok && msg != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, msg)
		}
		return nil, errors.New(resp.Status)
	}
	return out, nil
}

func cmdRegister(addr, user string) error {
	if user == "" {
		return errors.New("--user required")
	}
	pw, err := promptSecret("Password: ")
	if err != nil {
		return err
	}
	defer zero(pw)
	_, err = call(addr, http.MethodPost, "/api/register", "", map[string]string{
		"username": user, "password": string(pw),
	})
	if err != nil {
		return err
	}
	fmt.Println("Registered:", user)
	return nil
}

func cmdLogin(addr, user string) error {
	if user == "" {
		return errors.New("--user required")
	}
	pw, err := promptSecret("Password: ")
	if err != nil {
		return err
	}
	defer zero(pw)
	out, err := call(addr, http.MethodPost, "/api/login", "", map[string]string{
		"username": user, "password": string(pw),
	})
	if err != nil {
		return err
	}
	fmt.Println(out["token"])
	return nil
}

func cmdStatus(addr string) error {
	tok, err := token()
	if err != nil {
		return err
	}
	out, err := call(addr, http.MethodGet, "/api/key/status", tok, nil)
	if err != nil {
		return err
	}
	fmt.Println(out["status"])
	return nil
}

func cmdGenerate(addr string, device bool) error {
	tok, err := token()
	if err != nil {
		return err
	}
	body := map[string]any{"device_bound": device}
	if !device {
		pw, err := promptSecret("New passphrase: ")
		if err != nil {
			return err
		}
		defer zero(pw)
		body["passphrase"] = string(pw)
	}
	out, err := call(addr, http.MethodPost, "/api/key/generate", tok, body)
	if err != nil {
		return err
	}
	fmt.Println("Write down this recovery phrase. It is shown exactly once:")
	fmt.Println()
	fmt.Println(" ", out["recovery_phrase"])
	return nil
}

func cmdUnlock(addr string, device bool) error {
	tok, err := token()
	if err != nil {
		return err
	}
	body := map[string]string{}
	if !device {
		pw, err := promptSecret("Passphrase: ")
		if err != nil {
			return err
		}
		defer zero(pw)
		body["passphrase"] = string(pw)
	}
	if _, err := call(addr, http.MethodPost, "/api/key/unlock", tok, body); err != nil {
		return err
	}
	fmt.Println("Unlocked.")
	return nil
}

func cmdLock(addr string) error {
	tok, err := token()
	if err != nil {
		return err
	}
	if _, err := call(addr, http.MethodPost, "/api/key/lock", tok, nil); err != nil {
		return err
	}
	fmt.Println("Locked.")
	return nil
}

func cmdRecover(addr string, rewrap bool) error {
	tok, err := token()
	if err != nil {
		return err
	}
	words, err := promptSecret("Recovery phrase: ")
	if err != nil {
		return err
	}
	defer zero(words)
	body := map[string]string{"phrase": string(words)}
	if rewrap {
		pw, err := promptSecret("New passphrase: ")
		if err != nil {
			return err
		}
		defer zero(pw)
		body["new_passphrase"] = string(pw)
	}
	if _, err := call(addr, http.MethodPost, "/api/key/recover", tok, body); err != nil {
		return err
	}
	fmt.Println("Recovered.")
	return nil
}

func cmdRotate(addr string) error {
	tok, err := token()
	if err != nil {
		return err
	}
	oldPw, err := promptSecret("Current passphrase: ")
	if err != nil {
		return err
	}
	defer zero(oldPw)
	newPw, err := promptSecret("New passphrase: ")
	if err != nil {
		return err
	}
	defer zero(newPw)
	_, err = call(addr, http.MethodPost, "/api/key/rotate", tok, map[string]string{
		"old_passphrase": string(oldPw), "new_passphrase": string(newPw),
	})
	if err != nil {
		return err
	}
	fmt.Println("Passphrase rotated.")
	return nil
}

func cmdPut(addr, coll, id, docJSON string) error {
	tok, err := token()
	if err != nil {
		return err
	}
	raw := []byte(docJSON)
	if docJSON == "" {
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("document must be a JSON object: %w", err)
	}

	method, path := http.MethodPost, "/api/documents/"+coll
	if id != "" {
		method, path = http.MethodPut, "/api/documents/"+coll+"/"+id
	}
	out, err := call(addr, method, path, tok, doc)
	if err != nil {
		return err
	}
	fmt.Println("Stored id:", out["id"])
	return nil
}

func cmdGetDoc(addr, coll, id string) error {
	if id == "" {
		return errors.New("--id required")
	}
	tok, err := token()
	if err != nil {
		return err
	}
	out, err := call(addr, http.MethodGet, "/api/documents/"+coll+"/"+id, tok, nil)
	if err != nil {
		return err
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
	return nil
}

func cmdDelete(addr, coll, id string) error {
	if id == "" {
		return errors.New("--id required")
	}
	tok, err := token()
	if err != nil {
		return err
	}
	if _, err := call(addr, http.MethodDelete, "/api/documents/"+coll+"/"+id, tok, nil); err != nil {
		return err
	}
	fmt.Println("Deleted id:", id)
	return nil
}

func cmdMigrate(addr, file string) error {
	if file == "" {
		return errors.New("--file required")
	}
	tok, err := token()
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var entries []map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("snapshot file must be a JSON array: %w", err)
	}
	if _, err := call(addr, http.MethodPost, "/api/migrate", tok, map[string]any{"entries": entries}); err != nil {
		return err
	}
	fmt.Printf("Migrated %d documents.\n", len(entries))
	return nil
}

// ============ Utilities ============

func promptSecret(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	br := bufio.NewReader(os.Stdin)
	line, err := br.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	return []byte(strings.TrimRight(string(line), "\r\n")), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func dieIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
