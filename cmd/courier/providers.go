package main

// Channel blank imports. Each import activates a self-registering transformer.

import (
	_ "github.com/Strob0t/Courier/internal/adapter/drawer"
	_ "github.com/Strob0t/Courier/internal/adapter/googlechat"
	_ "github.com/Strob0t/Courier/internal/adapter/pagerduty"
	_ "github.com/Strob0t/Courier/internal/adapter/servicenow"
	_ "github.com/Strob0t/Courier/internal/adapter/slack"
	_ "github.com/Strob0t/Courier/internal/adapter/splunk"
	_ "github.com/Strob0t/Courier/internal/adapter/teams"
	_ "github.com/Strob0t/Courier/internal/adapter/webhook"
)
