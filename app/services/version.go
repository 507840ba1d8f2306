package services

// Version is the agent build version, overridden at link time
var Version = "dev"
