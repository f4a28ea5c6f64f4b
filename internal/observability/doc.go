// Package observability records riskdesk activity as JSON Lines, derives
// usage metrics from that log, evaluates alert conditions over it and
// forwards alerts to Slack.
package observability
