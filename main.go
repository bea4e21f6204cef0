package main

import (
	_ "git.handmade.network/hmn/boardmod/src/admintools"
	_ "git.handmade.network/hmn/boardmod/src/migration/cmd"
	"git.handmade.network/hmn/boardmod/src/website"
)

func main() {
	website.WebsiteCommand.Execute()
}
