package dashboard

// HTML templates for the dashboard pages, parsed once in New.

const layoutTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>X1-Clicker Ledger</title>
    <script src="https://cdn.tailwindcss.com"></script>
    <style>
        .mono { font-family: ui-monospace, SFMono-Regular, Menlo, Monaco, Consolas, monospace; }
        .logs { max-height: 320px; overflow-y: auto; }
    </style>
</head>
<body class="bg-gray-900 text-gray-100 min-h-screen">
    <nav class="bg-gray-800 border-b border-gray-700 sticky top-0 z-50">
        <div class="container mx-auto px-4">
            <div class="flex items-center h-16 space-x-8">
                <a href="/" class="text-xl font-bold text-white">X1-Clicker</a>
                <a href="/" class="px-3 py-2 rounded-md text-sm font-medium {{if eq .PageName "home"}}bg-gray-900 text-white{{else}}text-gray-300 hover:bg-gray-700{{end}}">Overview</a>
                <a href="/users" class="px-3 py-2 rounded-md text-sm font-medium {{if eq .PageName "users"}}bg-gray-900 text-white{{else}}text-gray-300 hover:bg-gray-700{{end}}">Users</a>
            </div>
        </div>
    </nav>

    <main class="container mx-auto px-4 py-6">
        {{.Content}}
    </main>

    <script>
        if (window.location.pathname === '/') {
            setInterval(async () => {
                try {
                    const data = await (await fetch('/api/status')).json();
                    const set = (id, v) => { const el = document.getElementById(id); if (el) el.textContent = v; };
                    set('slot', data.slot.toLocaleString());
                    set('transactions', data.transactions.toLocaleString());
                    set('accounts', data.accountsCount.toLocaleString());
                    set('uptime', data.uptime);
                } catch (e) {
                    console.error('Failed to fetch status:', e);
                }
            }, 5000);
        }
    </script>
</body>
</html>`

const homeTemplate = `
<div class="space-y-6">
    <div class="grid grid-cols-1 md:grid-cols-4 gap-4">
        <div class="bg-gray-800 rounded-lg p-6 border border-gray-700">
            <p class="text-gray-400 text-sm font-medium">Slot</p>
            <p class="text-3xl font-bold text-white mt-1" id="slot">{{.Status.Slot}}</p>
        </div>
        <div class="bg-gray-800 rounded-lg p-6 border border-gray-700">
            <p class="text-gray-400 text-sm font-medium">Transactions</p>
            <p class="text-3xl font-bold text-white mt-1" id="transactions">{{formatNumber .Status.Transactions}}</p>
        </div>
        <div class="bg-gray-800 rounded-lg p-6 border border-gray-700">
            <p class="text-gray-400 text-sm font-medium">Accounts</p>
            <p class="text-3xl font-bold text-white mt-1" id="accounts">{{formatNumber .Status.AccountsCount}}</p>
        </div>
        <div class="bg-gray-800 rounded-lg p-6 border border-gray-700">
            <p class="text-gray-400 text-sm font-medium">Uptime</p>
            <p class="text-3xl font-bold text-white mt-1" id="uptime">{{.Status.Uptime}}</p>
        </div>
    </div>

    <div class="bg-gray-800 rounded-lg p-4 border border-gray-700 text-sm">
        <span class="text-gray-400">Clicker program</span>
        <span class="mono text-gray-200 ml-2">{{.Status.ProgramID}}</span>
    </div>

    <div class="bg-gray-800 rounded-lg border border-gray-700 overflow-hidden">
        <div class="px-6 py-4 border-b border-gray-700">
            <h2 class="text-lg font-semibold text-white">Recent Transactions</h2>
        </div>
        <table class="w-full">
            <thead class="bg-gray-700/50">
                <tr>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-400 uppercase">Slot</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-400 uppercase">Signature</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-400 uppercase">Kind</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-400 uppercase">Status</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-400 uppercase">Time</th>
                </tr>
            </thead>
            <tbody class="divide-y divide-gray-700">
                {{range .Recent}}
                <tr class="hover:bg-gray-700/50">
                    <td class="px-6 py-3 text-gray-300">{{.Slot}}</td>
                    <td class="px-6 py-3"><a href="/transactions/{{.Signature}}" class="text-blue-400 hover:text-blue-300 mono text-sm">{{truncateHash .Signature 12}}</a></td>
                    <td class="px-6 py-3 text-gray-300">{{.Kind}}</td>
                    <td class="px-6 py-3">
                        {{if .Success}}<span class="px-2 py-1 text-xs rounded bg-green-500/20 text-green-400">Success</span>
                        {{else}}<span class="px-2 py-1 text-xs rounded bg-red-500/20 text-red-400" title="{{.Error}}">Failed</span>{{end}}
                    </td>
                    <td class="px-6 py-3 text-gray-400 text-sm">{{formatTime .BlockTime}}</td>
                </tr>
                {{else}}
                <tr><td colspan="5" class="px-6 py-8 text-center text-gray-500">No transactions yet</td></tr>
                {{end}}
            </tbody>
        </table>
    </div>
</div>
`

const usersTemplate = `
<div class="space-y-6">
    <h1 class="text-2xl font-bold text-white">User Lookup</h1>
    <form action="/users" method="get" class="flex space-x-2">
        <input type="text" name="q" value="{{.Query}}" placeholder="Wallet public key"
            class="flex-1 bg-gray-800 border border-gray-700 rounded px-4 py-2 mono text-sm text-white">
        <button type="submit" class="px-4 py-2 bg-blue-600 text-white rounded hover:bg-blue-500">Search</button>
    </form>

    {{if .SearchErr}}
    <div class="bg-red-900/50 border border-red-500 rounded-lg p-4"><p class="text-red-200">{{.SearchErr}}</p></div>
    {{end}}

    {{with .User}}
    <div class="bg-gray-800 rounded-lg border border-gray-700 p-6 space-y-4">
        <div>
            <p class="text-gray-400 text-sm">Wallet</p>
            <p class="mono text-sm text-white break-all">{{.Pubkey}}</p>
        </div>
        <div>
            <p class="text-gray-400 text-sm">Balance</p>
            <p class="text-white">{{formatSOL .Lamports}}</p>
        </div>
        {{if .State}}
        <div>
            <p class="text-gray-400 text-sm">User State</p>
            <p class="mono text-sm text-white break-all">{{.State.Address}}</p>
        </div>
        <div class="grid grid-cols-2 md:grid-cols-4 gap-4">
            <div><p class="text-gray-400 text-sm">Clicks</p><p class="text-2xl font-bold text-white">{{.State.ClickBalance}}</p></div>
            <div><p class="text-gray-400 text-sm">Value per Click</p><p class="text-2xl font-bold text-white">{{.State.ValuePerClick}}</p></div>
            <div><p class="text-gray-400 text-sm">Upgrade 0 Cost</p><p class="text-2xl font-bold text-white">{{.State.CostToUpgradeV1}}</p></div>
            <div><p class="text-gray-400 text-sm">Upgrade 1 Cost</p><p class="text-2xl font-bold text-white">{{.State.CostToUpgradeV2}}</p></div>
        </div>
        {{else}}
        <p class="text-gray-500">No user state</p>
        {{end}}
    </div>
    {{end}}
</div>
`

const transactionTemplate = `
<div class="space-y-6">
    {{if .Error}}
    <div class="bg-red-900/50 border border-red-500 rounded-lg p-4">
        <p class="text-red-200">{{.Error}}</p>
        <p class="mono text-sm text-red-300 break-all mt-2">{{.Signature}}</p>
    </div>
    <a href="/" class="inline-block text-blue-400 hover:text-blue-300">&larr; Back</a>
    {{else}}
    {{with .Transaction}}
    <h1 class="text-2xl font-bold text-white">Transaction</h1>
    <div class="bg-gray-800 rounded-lg border border-gray-700 p-6 grid grid-cols-1 md:grid-cols-2 gap-4">
        <div class="md:col-span-2">
            <p class="text-gray-400 text-sm">Signature</p>
            <p class="mono text-sm text-white break-all">{{.Signature}}</p>
        </div>
        <div><p class="text-gray-400 text-sm">Slot</p><p class="text-white">{{.Slot}}</p></div>
        <div><p class="text-gray-400 text-sm">Time</p><p class="text-white">{{formatTime .BlockTime}}</p></div>
        <div><p class="text-gray-400 text-sm">Kind</p><p class="text-white">{{.Kind}}</p></div>
        <div>
            <p class="text-gray-400 text-sm">Status</p>
            {{if .Success}}<p class="text-green-400">Success</p>{{else}}<p class="text-red-400">Failed: {{.Error}}</p>{{end}}
        </div>
        <div><p class="text-gray-400 text-sm">Compute Units</p><p class="text-white">{{.ComputeUnitsConsumed}}</p></div>
        {{if .DeltaHash}}<div><p class="text-gray-400 text-sm">Delta Hash</p><p class="mono text-sm text-white break-all">{{.DeltaHash}}</p></div>{{end}}
    </div>

    <div class="bg-gray-800 rounded-lg border border-gray-700 p-6">
        <h2 class="text-lg font-semibold text-white mb-4">Accounts ({{len .AccountKeys}})</h2>
        {{range .AccountKeys}}
        <p class="mono text-sm"><a href="/users?q={{.}}" class="text-blue-400 hover:text-blue-300">{{.}}</a></p>
        {{end}}
    </div>

    {{if .LogMessages}}
    <div class="bg-gray-800 rounded-lg border border-gray-700 p-6">
        <h2 class="text-lg font-semibold text-white mb-4">Logs</h2>
        <pre class="logs mono text-xs text-gray-300">{{range .LogMessages}}{{.}}
{{end}}</pre>
    </div>
    {{end}}
    {{end}}
    {{end}}
</div>
`
