package main

// Notifier blank imports. Each import self-registers a dispatcher factory;
// config selects which registered dispatchers actually run.

import (
	_ "github.com/curatd/curatd/internal/adapter/discord"
	_ "github.com/curatd/curatd/internal/adapter/email"
	_ "github.com/curatd/curatd/internal/adapter/slack"
	_ "github.com/curatd/curatd/internal/adapter/webhook"
)
