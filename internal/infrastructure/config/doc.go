// Package config handles loading and validating the video-stream bridge configuration.
//
// This package manages:
//   - Loading an optional .env file and an optional YAML file
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The historical BAMBORVIDEOSTREAM_SOCKADDR, BAMBORVIDEOSTREAM_CONNMAX and
// BAMBORVIDEOSTREAM_APIKEYSHA256 variables are honoured, so a deployment can
// run from the environment alone.
//
// Security Considerations:
//   - Only the SHA-256 of the API key is configured, never the key itself
//   - Broker and database credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("VIDEOSTREAM_CONFIG"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.ListenAddress)
package config
