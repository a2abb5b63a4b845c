package relorm

const Version = "0.1.0"
