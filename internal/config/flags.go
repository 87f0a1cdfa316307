package config

import "github.com/spf13/pflag"

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"url":           "server.url",
	"port":          "server.port",
	"apppath":       "server.apppath",
	"addr":          "server.addr",
	"doc":           "app.doc",
	"debug":         "app.debug",
	"listing":       "db.uri",
	"schema":        "db.schema",
	"policy":        "db.policy",
	"store":         "store.path",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"log-dir":       "log.dir",
	"fetch-timeout": "fetch.timeout",
}

// RegisterFlags adds the configuration flags to fs. "config" names the
// local config file and "remote-config" the remote default file; both are
// read by the caller into LoadOptions.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "config file (default $"+EnvConfig+" or "+DefaultLocalFile+")")
	fs.String("remote-config", "", "URI of a default config file merged below the local one")
	fs.String("url", d.Server.URL, "public server URL")
	fs.Int("port", d.Server.Port, "public server port")
	fs.String("apppath", d.Server.AppPath, "path prefix the API is served under")
	fs.String("addr", d.Server.Addr, "listen address (default :<port>)")
	fs.String("doc", d.App.Doc, "URL of the API documentation")
	fs.Bool("debug", d.App.Debug, "enable debug logging")
	fs.String("listing", "", "template listing path or URI")
	fs.String("schema", "", "workflow schema path or URI")
	fs.String("policy", d.DB.Policy, "load failure policy: fail-soft or fail-fast")
	fs.String("store", d.Store.Path, "SQLite database for load history")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	fs.String("log-format", d.Log.Format, "log format: text, json, pretty")
	fs.String("log-dir", d.Log.Dir, "directory for the rotating error log")
	fs.Duration("fetch-timeout", d.Fetch.Timeout, "timeout for remote document fetches")
}
