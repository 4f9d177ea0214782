// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

Commands register the flags on their flag set and resolve a Config after
parsing:

	cliparse.RegisterFlags(cmd.PersistentFlags())
	cfg, err := cliparse.Load(cmd.Flags())

ParseFlags does both for a plain argument list:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Sources

Each value comes from the first source that sets it:

 1. a flag given on the command line
 2. an environment variable (a .env file fills in variables that are unset)
 3. the YAML file named by --config
 4. the default

# Keys

	Flag                Env               YAML              Default
	-p, --port          PORT              port              3318
	-d, --database-url  DATABASE_URL      database_url      (required)
	-t, --database-type DATABASE_TYPE     database_type     sqlite
	--admin-salt        ADMIN_KEY_SALT    admin_key_salt
	--nats-url          NATS_URL          nats_url
	--nats-embedded     NATS_EMBEDDED     nats_embedded     false
	--leaderboard-ttl   LEADERBOARD_TTL   leaderboard_ttl   10s
	--log-level         LOG_LEVEL         log_level         info
	--log-format        LOG_FORMAT        log_format        text

--config names the YAML file and --env-file the dotenv file (".env"; a
missing default file is ignored).

# Validation

Load returns an error for a missing database URL, an unsupported database
type or log format, a port outside 1-65535 or a non-positive TTL. The
admin salt is checked by the commands that need it.
*/
package cliparse
