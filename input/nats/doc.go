// Package nats provides a push-based source node fed by a NATS subscription.
//
// Unlike a poller the node has no worker of its own: the NATS client's
// delivery goroutine decodes each message and broadcasts it to the node's
// subscribers. Stop pauses dispatch without unsubscribing, so a later Start
// resumes immediately.
//
//	client, err := natsclient.NewClient(url)
//	err = client.Connect(ctx)
//	in, err := nats.New(client, nats.DefaultConfig("sensors.>"))
//	in.Subscribe(processor)
//	in.Start()
package nats
