package rxstream_test

import (
	"fmt"
	"time"

	"github.com/xinjiayu/rxstream"
)

func ExampleObservable_Pipe() {
	rxstream.Range(1, 6).Pipe(
		rxstream.Filter(func(v interface{}) bool { return v.(int)%2 == 0 }),
		rxstream.Map(func(v interface{}) (interface{}, error) { return v.(int) * v.(int), nil }),
	).SubscribeWithCallbacks(
		func(v interface{}) { fmt.Println(v) },
		nil,
		func() { fmt.Println("done") },
	)
	// Output:
	// 4
	// 16
	// 36
	// done
}

func ExampleMergeMap() {
	s := rxstream.NewVirtualTimeScheduler()

	rxstream.Of("a", "b", "c").Pipe(
		rxstream.MergeMap(func(value interface{}, _ int) *rxstream.Observable {
			return rxstream.Timer(time.Second, rxstream.WithScheduler(s)).Pipe(
				rxstream.Map(func(interface{}) (interface{}, error) { return value, nil }),
			)
		}, rxstream.WithConcurrency(2)),
	).SubscribeWithCallbacks(func(v interface{}) {
		fmt.Println(s.Frame(), v)
	}, nil, nil)

	s.Flush()
	// Output:
	// 1s a
	// 1s b
	// 2s c
}

func ExampleNewBehaviorSubject() {
	subject := rxstream.NewBehaviorSubject("idle")
	subject.SubscribeWithCallbacks(func(v interface{}) { fmt.Println("first:", v) }, nil, nil)

	subject.Next("running")
	subject.SubscribeWithCallbacks(func(v interface{}) { fmt.Println("second:", v) }, nil, nil)
	subject.Next("stopped")
	// Output:
	// first: idle
	// first: running
	// second: running
	// first: stopped
	// second: stopped
}

func ExampleNewReplaySubject() {
	subject := rxstream.NewReplaySubject(2)
	for i := 1; i <= 4; i++ {
		subject.Next(i)
	}
	subject.SubscribeWithCallbacks(func(v interface{}) { fmt.Println(v) }, nil, nil)
	// Output:
	// 3
	// 4
}

func ExampleSubscription_Unsubscribe() {
	sub := rxstream.NewSubscription(func() { fmt.Println("initial") })
	sub.Add(rxstream.TeardownFunc(func() { fmt.Println("child") }))
	sub.Add(rxstream.TeardownFunc(func() { panic("broken teardown") }))

	err := sub.Unsubscribe()
	fmt.Println(err)
	fmt.Println(sub.Unsubscribe())
	// Output:
	// initial
	// child
	// 1 errors occurred during unsubscription:
	// 1) rxstream: panic: broken teardown
	// <nil>
}
