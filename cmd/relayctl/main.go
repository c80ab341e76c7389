// relayctl talks to a running relay and inspects stored transcripts.
package main

func main() {
	Execute()
}
