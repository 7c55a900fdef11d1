/*
Package resilience provides a small circuit breaker for outbound calls.

The reminder mailer sends through it so a dead SMTP relay is not hammered
by retries on every scheduled run.

# Usage

	breaker := resilience.New("smtp", resilience.Settings{
		FailureThreshold: 3,
		Cooldown:         5 * time.Minute,
	})

	err := breaker.Execute(ctx, func(ctx context.Context) error {
		return mailer.Send(ctx, msg)
	})

# States

	Closed --[threshold failures]-> Open --[cooldown]-> Half-Open --[probe ok]-> Closed
	                                                       |
	                                                 [probe fails]
	                                                       v
	                                                     Open
*/
package resilience
