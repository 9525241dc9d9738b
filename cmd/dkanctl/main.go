package main

import (
	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/cli"
	"github.com/dcgoodwin2112/dkanClientTools-sub000/internal/common/logtrace"
)

func init() {
	logtrace.InitLogger()
}

func main() {
	cli.Execute()
}
