package account

import (
	"fmt"
	"strings"
)

// Decryptor unwraps inline PGP-armored blocks embedded in free text.
type Decryptor interface {
	DecryptAll(text string) (string, error)
}

// Patcher applies "key/path = value" lines to an account. The full
// text is decrypted first so sensitive values can travel as armored
// ciphertext; decryption failure aborts the whole apply.
type Patcher struct {
	decryptor Decryptor
}

func NewPatcher(d Decryptor) *Patcher {
	return &Patcher{decryptor: d}
}

// pathNode is one level of the recognized key-path tree. Leaves carry
// an assign function; inner nodes carry children.
type pathNode struct {
	children map[string]*pathNode
	assign   func(*Account, string) error
}

var schema = &pathNode{children: map[string]*pathNode{
	"account": {children: map[string]*pathNode{
		"inbox": {children: map[string]*pathNode{
			"enable": {assign: func(a *Account, v string) error {
				a.Inbox.Enable = IsTruthy(v)
				return nil
			}},
			"mode": {assign: func(a *Account, v string) error {
				mode, ok := ParseMode(v)
				if !ok {
					return fmt.Errorf("unknown inbox mode %q", v)
				}
				a.Inbox.Mode = mode
				return nil
			}},
		}},
		"cloud": {children: map[string]*pathNode{
			"token": {assign: func(a *Account, v string) error {
				a.Cloud.Token = v
				return nil
			}},
		}},
		"service": {children: map[string]*pathNode{
			"baseURI": {assign: func(a *Account, v string) error {
				a.Service.BaseURI = v
				return nil
			}},
			"token": {assign: func(a *Account, v string) error {
				a.Service.Token = v
				return nil
			}},
			"assetsDir": {assign: func(a *Account, v string) error {
				if !strings.HasPrefix(v, AssetsDirPrefix) {
					return fmt.Errorf("assets dir must start with %s", AssetsDirPrefix)
				}
				a.Service.AssetsDir = v
				return nil
			}},
			"notebook": {assign: func(a *Account, v string) error {
				a.Service.Notebook = v
				return nil
			}},
		}},
	}},
}}

// Apply parses text line by line and mutates acc in place. Each
// non-empty line must split on the first "=" into a recognized key
// path and a value; lines succeed or fail independently and the two
// result slices report the outcome. Rejected entries carry the key
// path when one could be parsed, otherwise the offending line
// verbatim. An invalid line never partially mutates the account.
func (p *Patcher) Apply(acc *Account, text string) (applied, rejected []string, err error) {
	if p.decryptor != nil {
		text, err = p.decryptor.DecryptAll(text)
		if err != nil {
			return nil, nil, fmt.Errorf("decrypt settings: %w", err)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			rejected = append(rejected, line)
			continue
		}
		if assign := lookup(key); assign != nil && assign(acc, value) == nil {
			applied = append(applied, key)
		} else {
			rejected = append(rejected, key)
		}
	}
	return applied, rejected, nil
}

// lookup walks the schema tree along the "/"-separated path and
// returns the leaf assign function, or nil when the path is unknown
// or stops at an inner node.
func lookup(path string) func(*Account, string) error {
	node := schema
	for _, part := range strings.Split(path, "/") {
		next, ok := node.children[part]
		if !ok {
			return nil
		}
		node = next
	}
	return node.assign
}
