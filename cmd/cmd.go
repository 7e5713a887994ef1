// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

func limitFlag(usage string) cli.Flag {
	return &cli.IntFlag{
		Name:  "limit",
		Usage: usage,
	}
}

// setupCommand creates the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml and initialize the database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   defaultConfigPath,
			},
		},
		Action: r.Setup,
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	serviceArg := []cli.Argument{&cli.StringArg{Name: "service", UsageText: "spotify or tidal"}}
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage service authentication",
		Commands: []*cli.Command{
			{
				Name:      "login",
				Usage:     "Authorize a service (Spotify via browser, TIDAL via device code)",
				Arguments: serviceArg,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-browser", Usage: "Print the authorization URL without opening a browser"},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show stored token state for every service",
				Action: r.AuthStatus,
			},
			{
				Name:      "logout",
				Usage:     "Delete the stored token for a service",
				Arguments: serviceArg,
				Action:    r.AuthLogout,
			},
		},
	}
}

// libraryCommand reads the source library
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Browse and export the source library",
		Commands: []*cli.Command{
			{
				Name:   "tracks",
				Usage:  "List saved tracks",
				Flags:  append(jsonFlags(), limitFlag("Maximum number of tracks to show")),
				Action: r.LibraryTracks,
			},
			{
				Name:   "albums",
				Usage:  "List saved albums",
				Flags:  append(jsonFlags(), limitFlag("Maximum number of albums to show")),
				Action: r.LibraryAlbums,
			},
			{
				Name:   "playlists",
				Usage:  "List playlists",
				Flags:  append(jsonFlags(), limitFlag("Maximum number of playlists to show")),
				Action: r.LibraryPlaylists,
			},
			{
				Name:  "export",
				Usage: "Export playlists to files",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "playlists",
						Usage: "Playlist IDs to export (repeat or comma separate)",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Export every playlist",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "json, csv, markdown, txt or yaml",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (default: <source>_export_<timestamp>)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent file writers",
						Value: 5,
					},
				},
				Action: r.LibraryExport,
			},
		},
	}
}

// transferCommand handles transfers and their history
func transferCommand(r *Runner) *cli.Command {
	formatFlag := &cli.StringFlag{
		Name:  "format",
		Usage: "Report and guide format: txt or yaml",
		Value: "txt",
	}
	return &cli.Command{
		Name:  "transfer",
		Usage: "Transfer library items to another service",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Transfer selected tracks, albums and playlists",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "to",
						Usage:    "Destination service (spotify, tidal, youtube, applemusic)",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "tracks",
						Usage: "Saved track IDs (repeat or comma separate)",
					},
					&cli.StringSliceFlag{
						Name:  "albums",
						Usage: "Saved album IDs",
					},
					&cli.StringSliceFlag{
						Name:  "playlists",
						Usage: "Playlist IDs",
					},
					&cli.BoolFlag{
						Name:  "all-tracks",
						Usage: "Select every saved track",
					},
					&cli.BoolFlag{
						Name:  "all-albums",
						Usage: "Select every saved album",
					},
					&cli.BoolFlag{
						Name:  "public",
						Usage: "Create public playlists",
					},
					&cli.StringFlag{
						Name:  "report",
						Usage: "Write the unmatched items report to this file",
					},
					&cli.StringFlag{
						Name:  "guide",
						Usage: "Write the migration guide to this file (search-only destinations)",
					},
					formatFlag,
				},
				Action: r.TransferRun,
			},
			{
				Name:  "history",
				Usage: "List recorded transfers",
				Flags: append(jsonFlags(),
					&cli.StringFlag{
						Name:  "to",
						Usage: "Only transfers to this destination",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only transfers with this status (running, completed, failed)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of transfers to show",
						Value: 20,
					},
				),
				Action: r.TransferHistory,
			},
			{
				Name:  "report",
				Usage: "Re-export the report of a recorded transfer",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Transfer ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to this file instead of stdout",
					},
					formatFlag,
				},
				Action: r.TransferReport,
			},
		},
	}
}

// cacheCommand manages the persistent match cache
func cacheCommand(r *Runner) *cli.Command {
	toFlag := &cli.StringFlag{
		Name:  "to",
		Usage: "Destination service (default: all)",
	}
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear cached matches",
		Commands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show cached matches and failed lookups",
				Flags:  []cli.Flag{toFlag},
				Action: r.CacheStats,
			},
			{
				Name:   "clear",
				Usage:  "Forget cached matches and failure backoff",
				Flags:  []cli.Flag{toFlag},
				Action: r.CacheClear,
			},
		},
	}
}

// serveCommand starts the HTTP API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the transfer API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: [server] host:port)",
			},
		},
		Action: r.Serve,
	}
}
