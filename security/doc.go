// Package security holds the TLS client settings shared by the service's
// outbound connections to Kafka brokers and Redis.
//
//	kafka:
//	  tls:
//	    enabled: true
//	    ca_file: /etc/mediascribe/ca.pem
package security
