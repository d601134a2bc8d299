// SPDX-License-Identifier: MPL-2.0

package main

import cmd "dataform-task/cmd/dataform-task"

func main() {
	cmd.Execute()
}
