package config

import (
	"fmt"
	"os"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// FileNotFoundError denotes failing to find configuration file.
type FileNotFoundError struct {
	name string
}

// Error returns the formatted configuration error.
func (f FileNotFoundError) Error() string {
	return fmt.Sprintf("config file %q not found", f.name)
}

type KeyNotFoundError struct {
	configFile string
	key        string
	err        error
}

func (k KeyNotFoundError) Error() string {
	if k.err != nil {
		return fmt.Sprintf("key %q not found in config file %q: %v", k.key, k.configFile, k.err)
	}
	return fmt.Sprintf("key %q not found in config file %q", k.key, k.configFile)
}

func (k KeyNotFoundError) Unwrap() error {
	return k.err
}

// File is a read-only YAML settings file.
// The file is loaded lazily on the first call to Get or Decode.
type File struct {
	Dirname      string
	FileName     string
	FilePrefix   string
	FileExt      string
	FullPath     string
	data         map[string]interface{}
	dataIsLoaded bool
	mu           sync.Mutex
}

func NewConfigFile(fullPath string) *File {
	c := &File{FullPath: fullPath}
	c.Dirname, c.FileName = path.Split(fullPath)
	c.FileExt = strings.TrimLeft(path.Ext(c.FileName), ".")
	c.FilePrefix = strings.TrimSuffix(c.FileName, "."+c.FileExt)
	c.data = make(map[string]interface{})
	return c
}

// Get will fetch the key from the config File into variable, out.
// Return a KeyNotFoundError if we can't find the key.
func (c *File) Get(key string, out interface{}) error {
	if reflect.ValueOf(out).Kind() != reflect.Ptr {
		return errors.New("out must be a pointer")
	}
	if err := c.load(); err != nil {
		return err
	}
	d, ok := c.data[key]
	if !ok { // if the key was not found...
		return KeyNotFoundError{configFile: c.FullPath, key: key}
	}
	if err := mapstructure.WeakDecode(d, out); err != nil {
		return KeyNotFoundError{configFile: c.FullPath, key: key, err: err}
	}
	return nil
}

// Decode unmarshals the whole file into the struct pointer out using mapstructure tags.
// Unknown keys are an error so typos do not silently fall back to defaults.
func (c *File) Decode(out interface{}) error {
	if err := c.load(); err != nil {
		return err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err = dec.Decode(c.data); err != nil {
		return errors.Wrapf(err, "malformed config file %q", c.FullPath)
	}
	return nil
}

// GetAllKeys returns the top level keys found in the file.
func (c *File) GetAllKeys() ([]string, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	retval := make([]string, 0, len(c.data))
	for k := range c.data {
		retval = append(retval, k)
	}
	return retval, nil
}

func (c *File) load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dataIsLoaded {
		return nil
	}
	b, err := os.ReadFile(c.FullPath)
	if os.IsNotExist(err) {
		return FileNotFoundError{name: c.FullPath}
	} else if err != nil {
		return errors.Wrapf(err, "error reading config file %q", c.FullPath)
	}
	if err = yaml.Unmarshal(b, &c.data); err != nil {
		return errors.Wrapf(err, "malformed config file %q", c.FullPath)
	}
	if c.data == nil { // if the file was empty...
		c.data = make(map[string]interface{})
	}
	c.dataIsLoaded = true
	return nil
}
